package upstream

import (
	"fmt"

	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/models"
)

// NewTerminal builds the terminal selected by upstream.kind
func NewTerminal(cfg models.MUpstreamConfig, network interfaces.INetworkManager, log *logger.Logger) (interfaces.IUpstream, error) {
	switch cfg.Kind {
	case "bridge":
		return NewBridgeClient(cfg, network, log), nil
	case "sim":
		return NewSimTerminal(nil), nil
	default:
		return nil, fmt.Errorf("unsupported upstream kind: %s", cfg.Kind)
	}
}
