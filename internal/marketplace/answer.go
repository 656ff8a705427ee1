package marketplace

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// questionFormAnswers QuestionFormAnswers 信封, 命名空间不参与匹配
type questionFormAnswers struct {
	XMLName xml.Name       `xml:"QuestionFormAnswers"`
	Answers []answerRecord `xml:"Answer"`
}

type answerRecord struct {
	QuestionIdentifier string  `xml:"QuestionIdentifier"`
	FreeText           *string `xml:"FreeText"`
}

// ParseAnswers 将答案信封解析为 字段标识 -> 文本 的映射
// 只收集 FreeText 类型的答案
func ParseAnswers(raw string) (map[string]string, error) {
	var envelope questionFormAnswers
	decoder := xml.NewDecoder(strings.NewReader(raw))
	decoder.CharsetReader = asciiCharsetReader
	if err := decoder.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	fields := make(map[string]string, len(envelope.Answers))
	for _, answer := range envelope.Answers {
		if answer.QuestionIdentifier == "" || answer.FreeText == nil {
			continue
		}
		fields[answer.QuestionIdentifier] = *answer.FreeText
	}
	return fields, nil
}

// asciiCharsetReader MTurk 的答案声明 encoding="ASCII", 它是 UTF-8 的子集
func asciiCharsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "ascii", "us-ascii":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

// ParseOutput 提取指定字段并校验其内容为合法 JSON
func ParseOutput(raw, field string) (json.RawMessage, error) {
	fields, err := ParseAnswers(raw)
	if err != nil {
		return nil, err
	}
	text, ok := fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingAnswer, field)
	}
	text = strings.TrimSpace(text)
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: field %q is not valid JSON", ErrParse, field)
	}
	return json.RawMessage(text), nil
}

// DecodeOutput 提取指定字段并解码到 v
func DecodeOutput(raw, field string, v interface{}) error {
	out, err := ParseOutput(raw, field)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, v); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

const questionFormAnswersNS = "http://mechanicalturk.amazonaws.com/AWSMechanicalTurkDataSchemas/2005-10-01/QuestionFormAnswers.xsd"

type encodedAnswers struct {
	XMLName xml.Name        `xml:"QuestionFormAnswers"`
	XMLNS   string          `xml:"xmlns,attr"`
	Answers []encodedAnswer `xml:"Answer"`
}

type encodedAnswer struct {
	QuestionIdentifier string `xml:"QuestionIdentifier"`
	FreeText           string `xml:"FreeText"`
}

// EncodeAnswers 把表单字段编码为 QuestionFormAnswers 信封
// 字段按 keys 给定的顺序输出
func EncodeAnswers(keys []string, fields map[string]string) (string, error) {
	envelope := encodedAnswers{XMLNS: questionFormAnswersNS}
	for _, key := range keys {
		envelope.Answers = append(envelope.Answers, encodedAnswer{
			QuestionIdentifier: key,
			FreeText:           fields[key],
		})
	}
	data, err := xml.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to encode answers: %w", err)
	}
	return xml.Header + string(data), nil
}

const externalQuestionNS = "http://mechanicalturk.amazonaws.com/AWSMechanicalTurkDataSchemas/2006-07-14/ExternalQuestion.xsd"

type externalQuestion struct {
	XMLName     xml.Name `xml:"ExternalQuestion"`
	XMLNS       string   `xml:"xmlns,attr"`
	ExternalURL string   `xml:"ExternalURL"`
	FrameHeight int      `xml:"FrameHeight"`
}

// ExternalQuestionXML 生成指向任务页面的 ExternalQuestion 文档
func ExternalQuestionXML(url string, frameHeight int) (string, error) {
	if url == "" {
		return "", fmt.Errorf("%w: ExternalURL", ErrMissingParam)
	}
	if frameHeight <= 0 {
		frameHeight = DefaultFrameHeight
	}
	data, err := xml.Marshal(externalQuestion{
		XMLNS:       externalQuestionNS,
		ExternalURL: url,
		FrameHeight: frameHeight,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode external question: %w", err)
	}
	return string(data), nil
}
