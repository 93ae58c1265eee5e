package gen

import (
	"creatorpay-engine/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

// NewNode returns the id generator for samples, earning entries and runs.
// NODE_ID must be unique per running process.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		zap.L().Error("[Snowflake] failed to init node", zap.Int64("node_id", cfg.NodeID), zap.Error(err))
		return nil, err
	}
	return node, nil
}
