package service

// DefaultChunkSize 是单条平台消息允许的最大字符数。
const DefaultChunkSize = 2000

// SplitReply 按字符（rune）把回复切成不超过 size 的片段，顺序保留，拼接后与原文完全一致。
// 空文本返回 nil。
func SplitReply(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
