package payment

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Params 支付接口的扁平参数
type Params map[string]string

// EncodeXML 编码为 <xml><k>v</k>...</xml>
// 键按字典序输出，纯数字值直接写入，其余值放入 CDATA。
func EncodeXML(params Params) []byte {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var buf bytes.Buffer
	buf.WriteString("<xml>")
	for _, key := range keys {
		value := params[key]
		buf.WriteString("<" + key + ">")
		if isNumeric(value) {
			buf.WriteString(value)
		} else {
			buf.WriteString("<![CDATA[")
			buf.WriteString(strings.ReplaceAll(value, "]]>", "]]]]><![CDATA[>"))
			buf.WriteString("]]>")
		}
		buf.WriteString("</" + key + ">")
	}
	buf.WriteString("</xml>")
	return buf.Bytes()
}

// isNumeric 只接受十进制整数或小数，例如 total_fee
func isNumeric(value string) bool {
	digits := strings.TrimPrefix(value, "-")
	if digits == "" || strings.Count(digits, ".") > 1 {
		return false
	}
	for _, r := range digits {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return digits != "."
}

// DecodeXML 解析一层的 <xml> 文档，嵌套元素被忽略
func DecodeXML(data []byte) (Params, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	params := make(Params)

	var (
		depth   int
		current string
		text    strings.Builder
		root    bool
	)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				root = true
			case 2:
				current = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				params[current] = strings.TrimSpace(text.String())
			}
			depth--
		}
	}
	if !root {
		return nil, fmt.Errorf("decode xml: empty document")
	}
	return params, nil
}
