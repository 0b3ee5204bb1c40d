package speechmatics

import "strings"

// ResultAlternative is one hypothesis for a recognized token.
type ResultAlternative struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence,omitempty"`
	Language   string  `json:"language,omitempty"`
	Speaker    string  `json:"speaker,omitempty"`
}

// ResultToken is a single token in a JSON-v2 transcript: a word,
// punctuation mark, entity or speaker-change marker.
type ResultToken struct {
	Type         string              `json:"type"`
	StartTime    float64             `json:"start_time"`
	EndTime      float64             `json:"end_time"`
	Channel      string              `json:"channel,omitempty"`
	AttachesTo   string              `json:"attaches_to,omitempty"`
	IsEOS        bool                `json:"is_eos,omitempty"`
	Alternatives []ResultAlternative `json:"alternatives,omitempty"`
	WrittenForm  []ResultToken       `json:"written_form,omitempty"`
}

// Token types as they appear in results.
const (
	TokenWord          = "word"
	TokenPunctuation   = "punctuation"
	TokenEntity        = "entity"
	TokenSpeakerChange = "speaker_change"
)

// LanguagePackInfo is the subset of the language pack manifest exposed to
// clients through the RecognitionStarted message.
type LanguagePackInfo struct {
	AdaptedLanguage       string `json:"adapted_language,omitempty"`
	LanguageDescription   string `json:"language_description,omitempty"`
	WordDelimiter         string `json:"word_delimiter"`
	WritingDirection      string `json:"writing_direction,omitempty"`
	ItnEnabled            bool   `json:"itn,omitempty"`
	TranscriptionTimeSpan string `json:"transcription_time_span,omitempty"`
}

// TranslationResult is one translated sentence from an AddTranslation
// message or a batch translation section.
type TranslationResult struct {
	Content   string  `json:"content"`
	Speaker   string  `json:"speaker,omitempty"`
	StartTime float64 `json:"start_time,omitempty"`
	EndTime   float64 `json:"end_time,omitempty"`
}

// Content returns the written content of a token. For entity tokens this is
// the written form rather than the spoken one.
func (t *ResultToken) Content() string {
	if t.Type == TokenEntity && len(t.WrittenForm) > 0 {
		return t.WrittenForm[0].Content()
	}
	if len(t.Alternatives) == 0 {
		return ""
	}
	return t.Alternatives[0].Content
}

// Speaker returns the speaker label of the first alternative, if any.
func (t *ResultToken) Speaker() string {
	if len(t.Alternatives) == 0 {
		return ""
	}
	return t.Alternatives[0].Speaker
}

// Language returns the language of the first alternative, if any.
func (t *ResultToken) Language() string {
	if len(t.Alternatives) == 0 {
		return ""
	}
	return t.Alternatives[0].Language
}

// ConvertToTxt renders a set of JSON-v2 result tokens as plain text.
// Tokens are grouped by speaker and language; punctuation is attached to
// its neighbours according to attaches_to. The word delimiter comes from
// the language pack info when available, falling back to no delimiter for
// cmn and ja and a space otherwise.
func ConvertToTxt(tokens []ResultToken, language string, packInfo *LanguagePackInfo, speakerLabels, speakerChangeToken bool) string {
	delimiter := " "
	if language == "cmn" || language == "ja" {
		delimiter = ""
	}
	if packInfo != nil && packInfo.WordDelimiter != "" {
		delimiter = packInfo.WordDelimiter
	}

	var texts []string
	currentSpeaker := ""
	for _, group := range groupTokens(tokens) {
		if len(group) == 0 {
			continue
		}
		// groupTokens always puts speaker_change tokens first in a new group
		if group[0].Type == TokenSpeakerChange {
			if speakerChangeToken {
				if len(group) == 1 {
					texts = append(texts, "<sc>")
				} else {
					texts = append(texts, "<sc>\n")
				}
			}
			if len(group) == 1 {
				continue
			}
			group = group[1:]
		}

		speaker := group[0].Speaker()
		if speaker != "" && speaker != currentSpeaker && speakerLabels {
			currentSpeaker = speaker
			texts = append(texts, "SPEAKER: "+currentSpeaker+"\n")
		}
		texts = append(texts, joinTokens(group, delimiter), "\n")
	}

	return strings.TrimRight(strings.Join(texts, ""), " \n")
}

// groupTokens splits results into runs with the same speaker and language.
// A speaker_change token always starts a new group.
func groupTokens(tokens []ResultToken) [][]ResultToken {
	var groups [][]ResultToken
	type key struct{ speaker, language string }
	var last key
	haveLast := false
	lastIsSpeakerChange := false

	for _, token := range tokens {
		token := token
		if token.Type == TokenSpeakerChange {
			groups = append(groups, []ResultToken{token})
			lastIsSpeakerChange = true
			continue
		}
		k := key{token.Speaker(), token.Language()}
		if len(groups) > 0 && (lastIsSpeakerChange || (haveLast && last == k)) {
			groups[len(groups)-1] = append(groups[len(groups)-1], token)
		} else {
			groups = append(groups, []ResultToken{token})
		}
		last = k
		haveLast = true
		lastIsSpeakerChange = false
	}
	return groups
}

// joinTokens joins a single speaker/language group into plain text.
// Punctuation can attach to the previous or next word, so words and their
// punctuation are first merged into units which are then joined with the
// word delimiter.
func joinTokens(tokens []ResultToken, delimiter string) string {
	var contents []string
	current := ""
	for i := range tokens {
		token := &tokens[i]
		switch token.Type {
		case TokenWord, TokenEntity:
			contents = append(contents, current+token.Content())
			current = ""
		case TokenPunctuation:
			attachment := token.AttachesTo
			if attachment == "" {
				attachment = "previous"
			}
			switch attachment {
			case "next":
				current = token.Content()
			case "previous":
				if len(contents) > 0 {
					contents[len(contents)-1] += token.Content()
				}
			case "none":
				contents = append(contents, token.Content())
			case "both":
				if len(contents) > 0 {
					current = contents[len(contents)-1] + token.Content()
					contents = contents[:len(contents)-1]
				}
			}
		}
	}
	if current != "" {
		contents = append(contents, current)
	}
	return strings.Join(contents, delimiter)
}

// ConvertTranslationsToTxt renders translation results as plain text with
// speaker labels.
func ConvertTranslationsToTxt(translations []TranslationResult) string {
	var sentences []string
	currentSpeaker := ""
	for _, tr := range translations {
		if tr.Content == "" {
			continue
		}
		delimiter := " "
		if tr.Speaker != "" && tr.Speaker != currentSpeaker {
			currentSpeaker = tr.Speaker
			sentences = append(sentences, "SPEAKER: "+currentSpeaker+"\n")
			delimiter = "\n"
		}
		sentences = append(sentences, tr.Content, delimiter)
	}
	return strings.TrimRight(strings.Join(sentences, ""), " \n")
}
