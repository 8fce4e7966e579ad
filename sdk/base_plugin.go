package sdk

import "context"

// BasePlugin provides no-op lifecycle methods. Plugins can embed it and only
// override what they need.
type BasePlugin struct {
	Meta Metadata
}

// NewBasePlugin creates a base plugin with the given metadata.
func NewBasePlugin(meta Metadata) *BasePlugin {
	return &BasePlugin{Meta: meta}
}

func (b *BasePlugin) Metadata() Metadata {
	return b.Meta
}

func (b *BasePlugin) Init(ctx context.Context, host Host) error {
	return nil
}

func (b *BasePlugin) Start(ctx context.Context) error {
	return nil
}

func (b *BasePlugin) Stop(ctx context.Context) error {
	return nil
}
