package net

// TCPAcceptorCfg configures a TCPAcceptor. It follows the teacher's
// TCPTransportCfg shape: a mapstructure-tagged config.Config with a
// Validate method suitable for registration with config.ConfigManager.
type TCPAcceptorCfg struct {
	Tag           string `mapstructure:"tag"`
	Addr          string `mapstructure:"addr"`
	IdleTimeout   uint32 `mapstructure:"idleTimeout"`
	MaxBufferSize int    `mapstructure:"maxBufferSize"`
}

// GetName implements config.Config.
func (c *TCPAcceptorCfg) GetName() string {
	return "tcp_acceptor"
}

// Validate implements config.Config.
func (c *TCPAcceptorCfg) Validate() error {
	if c.Addr == "" {
		return errAddrEmpty
	}
	if c.MaxBufferSize <= 0 {
		return errBufSizeInvalid
	}
	return nil
}
