package notify

// Broadcaster 向在线客户端广播消息
type Broadcaster interface {
	BroadcastJSON(msgType string, data interface{}) error
}

// MessageTypeNotification 推送通知的消息类型
const MessageTypeNotification = "notification"

// HubSink 通过WebSocket推送通知
type HubSink struct {
	b Broadcaster
}

// NewHubSink 创建WebSocket通知
func NewHubSink(b Broadcaster) *HubSink {
	return &HubSink{b: b}
}

// Notify 广播通知
func (s *HubSink) Notify(n Notification) {
	_ = s.b.BroadcastJSON(MessageTypeNotification, n)
}
