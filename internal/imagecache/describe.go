package imagecache

import (
	"errors"
	"fmt"

	"github.com/any-hub/imagehub/internal/fetch"
)

// Describe 将缓存错误渲染为面向用户的提示文本。仅用于展示，调用方分支判断应使用 KindOf/errors.Is。
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		return err.Error()
	}

	switch cerr.Kind {
	case KindNoDirectoryAvailable:
		return "系统未提供可用的缓存根目录"
	case KindDirectoryCreationFailed:
		return fmt.Sprintf("无法创建缓存目录 %s", cerr.Path)
	case KindFailedToEncodeAddress:
		return fmt.Sprintf("图片地址无法转换为缓存文件名: %s", cerr.Address)
	case KindFailedToReadFromDisk:
		return fmt.Sprintf("读取磁盘缓存失败: %s", cerr.Path)
	case KindFailedToDecodeImage:
		return fmt.Sprintf("%s 返回的 %d 字节不是有效图片", describeOrigin(cerr.Origin), cerr.Bytes)
	case KindFailedToFetch:
		return describeNetwork(cerr.NetworkError())
	case KindTaskCancelled:
		return "请求已取消"
	case KindFailedToWriteToDisk:
		return fmt.Sprintf("写入磁盘缓存失败: %s", cerr.Path)
	default:
		return cerr.Error()
	}
}

func describeOrigin(origin Tier) string {
	switch origin {
	case TierDisk:
		return "磁盘缓存"
	case TierNetwork:
		return "网络"
	default:
		return "内存缓存"
	}
}

func describeNetwork(netErr *fetch.NetworkError) string {
	if netErr == nil {
		return "图片下载失败"
	}
	switch netErr.Kind {
	case fetch.KindStatusCode:
		return fmt.Sprintf("图片下载失败：上游返回状态码 %d", netErr.StatusCode)
	case fetch.KindMalformedResponse:
		return "图片下载失败：上游响应无法解析"
	case fetch.KindTransport:
		return "图片下载失败：无法连接上游"
	case fetch.KindCancelled:
		return "请求已取消"
	default:
		return "图片下载失败：未知错误"
	}
}
