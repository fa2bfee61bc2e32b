package imagecache

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// maxFileNameBytes 对应常见文件系统单个文件名的长度上限。
const maxFileNameBytes = 255

const upperHex = "0123456789ABCDEF"

// CanonicalAddress 规范化图片地址，作为内存表的键与磁盘文件名的来源。
func CanonicalAddress(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("address is empty")
	}
	if !utf8.ValidString(trimmed) {
		return "", errors.New("address is not valid UTF-8")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address %q is not absolute", trimmed)
	}
	return u.String(), nil
}

// EncodeAddress 将地址中 [A-Za-z0-9] 以外的每个字节编码为 %XX，得到文件系统安全的文件名。
func EncodeAddress(address string) (string, error) {
	if address == "" {
		return "", errors.New("address is empty")
	}
	if !utf8.ValidString(address) {
		return "", errors.New("address is not valid UTF-8")
	}

	var b strings.Builder
	b.Grow(len(address) * 3)
	for i := 0; i < len(address); i++ {
		c := address[i]
		if isAlnum(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}

	if b.Len() > maxFileNameBytes {
		return "", fmt.Errorf("encoded name is %d bytes, limit is %d", b.Len(), maxFileNameBytes)
	}
	return b.String(), nil
}

// DecodeFileName 是 EncodeAddress 的逆操作，用于从 fixture 目录还原地址。
func DecodeFileName(name string) (string, error) {
	return url.PathUnescape(name)
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
