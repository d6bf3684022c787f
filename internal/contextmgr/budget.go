package contextmgr

import "gravchat/internal/chat"

// Counter counts the tokens of one message.
type Counter interface {
	CountMessage(msg chat.Message) int
}

// TrimToBudget 从最旧的消息开始丢弃，直到总量不超过 budget；最后一条始终保留
// TrimToBudget drops the oldest messages until the total fits budget. The
// last message is always kept. A budget <= 0 disables trimming. It returns
// the kept suffix and its token count.
func TrimToBudget(messages []chat.Message, counter Counter, budget int) ([]chat.Message, int) {
	counts := make([]int, len(messages))
	total := 0
	for i, m := range messages {
		counts[i] = counter.CountMessage(m)
		total += counts[i]
	}
	if budget <= 0 {
		return messages, total
	}
	start := 0
	for total > budget && start < len(messages)-1 {
		total -= counts[start]
		start++
	}
	return messages[start:], total
}
