package i18n

// ZhCNMessages 简体中文消息目录
// ZhCNMessages Simplified Chinese message catalog
var ZhCNMessages = map[string]string{
	// 对话 / Transcript
	"chat.title.new":         "新对话",
	"chat.title.image":       "图片分析",
	"chat.empty_response":    "模型返回了空响应。",
	"chat.error_annotation":  "\n\n**错误: %s**",
	"chat.interrupted":       "生成已中断",
	"chat.request_failed":    "无法从服务器获取响应。",
	"chat.no_active_model":   "尚未选择模型，请先执行 `groups use <model>`。",
	"chat.turn_in_progress":  "当前会话仍在生成回复。",
	"chat.context_estimate":  "上下文 ≈ %d tokens",
	"chat.attachment_header": "附件: %s",

	// REPL
	"repl.welcome":     "gravchat: 输入消息，/help 查看命令，Ctrl-D 退出。",
	"repl.help":        "命令: /new, /list, /show, /open <id>, /delete <id>, /resend <n>, /edit <n>, /attach <文件>, /model <id>, /context on|off, /retention <天数>, /quit",
	"repl.prompt":      "你> ",
	"repl.bye":         "再见。",
	"repl.unknown":     "未知命令: %s",
	"repl.new":         "已开始新对话。",
	"repl.opened":      "已打开 %s (%s)",
	"repl.deleted":     "已删除 %s",
	"repl.draft":       "已恢复草稿: %s",
	"repl.model_set":   "模型已切换为 %s (%s)",
	"repl.context_on":  "已启用上下文",
	"repl.context_off": "已关闭上下文",
	"repl.retention":   "保留期已设为 %d 天",
	"repl.usage":       "用法: %s",

	// 分组 / Groups
	"groups.created":   "已创建分组 %s，共 %d 个模型",
	"groups.deleted":   "已删除分组 %s",
	"groups.synced":    "已同步 %s: %d 个模型 (+%d / -%d)",
	"groups.sync_fail": "同步 %s 失败",
	"groups.empty":     "尚未配置任何分组。",

	// 会话 / Sessions
	"sessions.empty":   "没有保存的会话。",
	"sessions.pruned":  "已清理 %d 个过期会话",
	"sessions.cleared": "历史已清空",

	// 存储 / Store
	"store.usage":    "已用 %s MB / %s MB (%.1f%%)",
	"store.imported": "已导入 %d 个会话 (跳过 %d)，分组: %t，设置: %d",

	// 错误 / Errors
	"error.provider": "服务商错误: %s",
	"error.config":   "配置错误: %s",
	"error.store":    "存储不可用: %s",
}
