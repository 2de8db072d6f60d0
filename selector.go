package distill

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
)

// sniffLimit bounds how much of a file the selector reads to classify it.
const sniffLimit = 8 * 1024

// codeExtensions maps source-code suffixes to the AST extraction engine.
// Only languages the code engine can actually parse belong here; everything
// else that is textual falls through to the text pass-through via the sniff.
var codeExtensions = map[string]bool{
	".go": true,
}

// documentExtensions maps document formats to the converter engine.
var documentExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".ppt":  true,
	".pptx": true,
	".odt":  true,
	".odp":  true,
	".epub": true,
	".rtf":  true,
}

// imageExtensions maps image formats to the captioner engine.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
}

// SelectEngine picks an engine name for a source file when the caller does
// not specify one. Resolution order: known code suffix, known document
// suffix, known image suffix, then a bounded content sniff that classifies
// the file as text or binary. Selection never fails: unreadable or missing
// files resolve to the binary fallback.
func SelectEngine(fs afero.Fs, path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case codeExtensions[ext]:
		return EngineCode
	case documentExtensions[ext]:
		return EngineConvert
	case imageExtensions[ext]:
		return EngineCaption
	}

	f, err := fs.Open(path)
	if err != nil {
		return EngineBinary
	}
	defer f.Close()

	buf := make([]byte, sniffLimit)
	n, err := io.ReadFull(f, buf)
	truncated := err == nil // a full buffer means the file continues past it
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return EngineBinary
	}
	buf = buf[:n]

	if bytes.IndexByte(buf, 0) >= 0 {
		return EngineBinary
	}
	if !validUTF8Prefix(buf, truncated) {
		return EngineBinary
	}
	return EngineText
}

// validUTF8Prefix reports whether buf is valid UTF-8, tolerating a rune cut
// off at the end when the buffer is a truncated prefix of a larger file.
func validUTF8Prefix(buf []byte, truncated bool) bool {
	if truncated {
		// Drop up to utf8.UTFMax-1 trailing bytes of an incomplete rune.
		for i := 0; i < utf8.UTFMax-1 && len(buf) > 0; i++ {
			r, size := utf8.DecodeLastRune(buf)
			if r != utf8.RuneError || size != 1 {
				break
			}
			buf = buf[:len(buf)-1]
		}
	}
	return utf8.Valid(buf)
}
