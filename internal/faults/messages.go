package faults

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys double as the English text.
const (
	msgNetworkTimeout     = "The network connection timed out. Check your connection and try again."
	msgNetworkUnreachable = "The download server cannot be reached. Check your network settings."
	msgConnRefused        = "The download server refused the connection. It may be temporarily unavailable."
	msgSlowConnection     = "The network connection is too slow to finish the download."
	msgServerError        = "The download server returned an error (HTTP %d)."
	msgClientError        = "The download request was rejected (HTTP %d). Check the requested version."
	msgRedirectLoop       = "The download link redirected too many times."
	msgInsufficientSpace  = "There is not enough disk space. Free some space and try again."
	msgPermissionDenied   = "Permission to write the browser files was denied."
	msgCorrupted          = "The downloaded archive is corrupted."
	msgIOError            = "A file operation failed while installing the browser."
	msgInvalidBrowser     = "This browser type is not supported."
	msgInvalidVersion     = "The requested browser version is not valid."
	msgInvalidPlatform    = "This operating system platform is not supported."
	msgURLNotFound        = "No download is available for this browser version."
	msgResourceExhausted  = "The system ran out of resources while downloading."
	msgProcessError       = "The download helper process failed. Restart the service and try again."
	msgUnknown            = "An unexpected error occurred. Check the logs for details."
)

var supportedLanguages = []language.Tag{
	language.English,
	language.SimplifiedChinese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

func init() {
	zh := map[string]string{
		msgNetworkTimeout:     "网络连接超时，请检查网络连接",
		msgNetworkUnreachable: "无法访问下载服务器，请检查网络设置",
		msgConnRefused:        "下载服务器拒绝连接，可能服务器暂时不可用",
		msgSlowConnection:     "网络连接缓慢，无法完成下载",
		msgServerError:        "服务器错误 (HTTP %d)",
		msgClientError:        "请求错误 (HTTP %d)，请检查下载版本",
		msgRedirectLoop:       "下载链接重定向过多",
		msgInsufficientSpace:  "磁盘空间不足，请清理磁盘空间后重试",
		msgPermissionDenied:   "文件权限不足，无法写入浏览器文件",
		msgCorrupted:          "下载文件损坏",
		msgIOError:            "安装浏览器时文件操作失败",
		msgInvalidBrowser:     "不支持的浏览器类型",
		msgInvalidVersion:     "无效的浏览器版本号",
		msgInvalidPlatform:    "不支持的操作系统平台",
		msgURLNotFound:        "找不到下载链接，该版本可能不存在",
		msgResourceExhausted:  "系统资源不足",
		msgProcessError:       "下载进程错误，请重启服务后重试",
		msgUnknown:            "发生未知错误，请查看日志",
	}
	for key, value := range zh {
		if err := message.SetString(language.SimplifiedChinese, key, value); err != nil {
			panic(fmt.Sprintf("register zh message %q: %v", key, err))
		}
	}
}

// ParseLanguage resolves a configured language name ("en", "zh", "zh-CN", ...)
// to one of the supported message languages. Unknown values fall back to English.
func ParseLanguage(value string) language.Tag {
	value = strings.TrimSpace(value)
	if value == "" {
		return language.English
	}
	tag, err := language.Parse(value)
	if err != nil {
		return language.English
	}
	return matchLanguage(tag)
}

func matchLanguage(tag language.Tag) language.Tag {
	_, idx, confidence := languageMatcher.Match(tag)
	if confidence == language.No || idx < 0 || idx >= len(supportedLanguages) {
		return language.English
	}
	return supportedLanguages[idx]
}

// UserMessage renders the localized, user-facing description. It never
// includes the raw executor output.
func (e Error) UserMessage(tag language.Tag) string {
	printer := message.NewPrinter(matchLanguage(tag))
	switch e.Kind {
	case KindNetworkTimeout:
		return printer.Sprintf(msgNetworkTimeout)
	case KindNetworkUnreachable:
		return printer.Sprintf(msgNetworkUnreachable)
	case KindNetworkConnRefused:
		return printer.Sprintf(msgConnRefused)
	case KindNetworkSlowConnection:
		return printer.Sprintf(msgSlowConnection)
	case KindHTTPServerError:
		return printer.Sprintf(msgServerError, e.StatusCode)
	case KindHTTPClientError:
		return printer.Sprintf(msgClientError, e.StatusCode)
	case KindHTTPRedirectLoop:
		return printer.Sprintf(msgRedirectLoop)
	case KindInsufficientSpace:
		return printer.Sprintf(msgInsufficientSpace)
	case KindPermissionDenied:
		return printer.Sprintf(msgPermissionDenied)
	case KindCorruptedDownload:
		return printer.Sprintf(msgCorrupted)
	case KindIOError:
		return printer.Sprintf(msgIOError)
	case KindInvalidBrowserType:
		return printer.Sprintf(msgInvalidBrowser)
	case KindInvalidVersion:
		return printer.Sprintf(msgInvalidVersion)
	case KindInvalidPlatform:
		return printer.Sprintf(msgInvalidPlatform)
	case KindDownloadURLNotFound:
		return printer.Sprintf(msgURLNotFound)
	case KindResourceExhausted:
		return printer.Sprintf(msgResourceExhausted)
	case KindProcessError:
		return printer.Sprintf(msgProcessError)
	default:
		return printer.Sprintf(msgUnknown)
	}
}
