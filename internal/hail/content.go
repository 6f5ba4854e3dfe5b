package hail

import "encoding/json"

// BlockType discriminates ContentBlock.
type BlockType string

const (
	BlockText      BlockType = "text"
	BlockCode      BlockType = "code"
	BlockImage     BlockType = "image"
	BlockVideo     BlockType = "video"
	BlockAudio     BlockType = "audio"
	BlockFile      BlockType = "file"
	BlockJSON      BlockType = "json"
	BlockReference BlockType = "reference"
)

// ContentBlock is one piece of event content. The Type field determines
// which other fields are populated.
type ContentBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Code      string          `json:"code,omitempty"`
	Language  string          `json:"language,omitempty"`
	StartLine *int            `json:"start_line,omitempty"`
	URL       string          `json:"url,omitempty"`
	MIME      string          `json:"mime,omitempty"`
	Alt       string          `json:"alt,omitempty"`
	Path      string          `json:"path,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	URI       string          `json:"uri,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
}

func Text(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func Code(code, language string, startLine int) ContentBlock {
	block := ContentBlock{Type: BlockCode, Code: code, Language: language}
	if startLine > 0 {
		block.StartLine = &startLine
	}
	return block
}

// JSON wraps raw JSON data. Invalid JSON is stored as a JSON string so the
// block always serializes.
func JSON(data []byte) ContentBlock {
	if !json.Valid(data) {
		quoted, _ := json.Marshal(string(data))
		data = quoted
	}
	return ContentBlock{Type: BlockJSON, Data: json.RawMessage(data)}
}

func FileBlock(path string, content *string) ContentBlock {
	return ContentBlock{Type: BlockFile, Path: path, Content: content}
}

func Reference(uri, mediaType string) ContentBlock {
	return ContentBlock{Type: BlockReference, URI: uri, MediaType: mediaType}
}

// Media builds an image, video or audio block.
func Media(kind BlockType, url, mime string) ContentBlock {
	return ContentBlock{Type: kind, URL: url, MIME: mime}
}

// TextContent is a convenience for single-text-block content; empty text
// yields no blocks.
func TextContent(text string) []ContentBlock {
	if text == "" {
		return nil
	}
	return []ContentBlock{Text(text)}
}
