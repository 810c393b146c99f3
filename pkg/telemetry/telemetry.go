package telemetry

// Stub for self-hosted builds - usage reporting is opt-in and off by default.
// A nil *Client is safe to call.

type Client struct{}

var GlobalClient *Client = nil

func (c *Client) TrackWithContext(event string, props map[string]interface{}, args ...string) {}
func (c *Client) Track(event string, props map[string]interface{})                            {}
