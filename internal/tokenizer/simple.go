package tokenizer

import (
	"strconv"
	"strings"
)

// Reserved special token ids, mirroring the llama-family convention of
// carving a handful of ids out of the low end of the vocabulary for
// control tokens rather than learned words.
const (
	TokenBOS = 0
	TokenEOT = 1
	TokenPad = 2

	firstWordToken = 3
)

// SimpleTokenizer is a deterministic, whitespace-level stand-in used where
// no real trained vocabulary is available: every distinct whitespace-
// separated token seen is assigned the next free id, in first-seen order.
// It exists to exercise the generator and loader end to end; it is not a
// drop-in for the real byte-pair encoding the weights were trained on.
type SimpleTokenizer struct {
	vocab   map[string]int
	inverse map[int]string
}

func NewSimpleTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{
		vocab:   make(map[string]int),
		inverse: make(map[int]string),
	}
}

func (t *SimpleTokenizer) idFor(word string) int {
	if id, ok := t.vocab[word]; ok {
		return id
	}
	id := firstWordToken + len(t.vocab)
	t.vocab[word] = id
	t.inverse[id] = word
	return id
}

// EncodeDialogPrompt renders messages as "<role>: <content>" lines
// separated by EOT, word-tokenized, and terminated with a trailing EOT so
// the generator's first next_token() call attends to a complete prompt.
func (t *SimpleTokenizer) EncodeDialogPrompt(messages []Message) []int {
	ids := []int{TokenBOS}
	for _, m := range messages {
		ids = append(ids, t.idFor(m.Role.String()+":"))
		for _, w := range strings.Fields(m.Content) {
			ids = append(ids, t.idFor(w))
		}
		ids = append(ids, TokenEOT)
	}
	return ids
}

// DecodeDialog splits tokens on EOT boundaries back into messages, reading
// the role off the leading "<role>:" word of each segment.
func (t *SimpleTokenizer) DecodeDialog(tokens []int) []Message {
	var messages []Message
	var cur []int
	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := t.Decode(cur)
		role := RoleAssistant
		for i, r := range []Role{RoleSystem, RoleUser, RoleAssistant} {
			prefix := r.String() + ":"
			if strings.HasPrefix(text, prefix) {
				role = []Role{RoleSystem, RoleUser, RoleAssistant}[i]
				text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
				break
			}
		}
		messages = append(messages, Message{Role: role, Content: text})
		cur = nil
	}
	for _, tok := range tokens {
		if tok == TokenBOS {
			continue
		}
		if tok == TokenEOT {
			flush()
			continue
		}
		cur = append(cur, tok)
	}
	flush()
	return messages
}

// Decode renders tokens back to whitespace-joined text, substituting a
// bracketed placeholder for any id this tokenizer never assigned.
func (t *SimpleTokenizer) Decode(tokens []int) string {
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		switch tok {
		case TokenBOS, TokenEOT, TokenPad:
			continue
		}
		if w, ok := t.inverse[tok]; ok {
			words = append(words, w)
		} else {
			words = append(words, "<"+strconv.Itoa(tok)+">")
		}
	}
	return strings.Join(words, " ")
}

func (t *SimpleTokenizer) IsEOT(token int) bool { return token == TokenEOT }
