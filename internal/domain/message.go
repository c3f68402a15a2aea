package domain

import "time"

// Message 表示一条投递到收件人邮箱的聊天消息。
// Sequence 由服务端分配（见 storage.SequenceAllocator），
// 客户端提交的序号会被忽略；消息一经写入不可修改。
type Message struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Sent     time.Time `json:"date"`
	Text     string    `json:"text"`
	Sequence uint64    `json:"sequence"`
}
