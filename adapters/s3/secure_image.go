package s3

import (
	"mime"
	"net/http"
	"strings"
)

// SecureMIMETypesExtension 定義了允許上傳的安全圖片類型及其對應的副檔名
// 不包含 SVG 這類可能夾帶腳本的格式
var SecureMIMETypesExtension = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/webp": "webp",
}

// CheckSecureImageAndGetExtension 檢查給定的 MIME 類型是否為允許的圖片類型，並返回對應的副檔名
func CheckSecureImageAndGetExtension(mimeType string) (bool, string) {
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mediaType
	}
	ext, ok := SecureMIMETypesExtension[strings.ToLower(mimeType)]
	return ok, ext
}

// DetectSecureImage 依照檔案內容判斷圖片類型，不信任客戶端提供的 Content-Type
func DetectSecureImage(content []byte) (mimeType string, ok bool) {
	mimeType = http.DetectContentType(content)
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mediaType
	}
	ok, _ = CheckSecureImageAndGetExtension(mimeType)
	return mimeType, ok
}
