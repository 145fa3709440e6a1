package upload

import (
	"fmt"
	"strings"
)

// 对象 key 约定，全部位于 owner 命名空间下：
//
//	源文件:     {owner}/decks/{slug}-{version}.{ext}
//	渲染页面:   {owner}/deck-images/{slug}/page-{n}-{version}.webp
//	远程转换页: {owner}/deck-images/{slug}/page-{n}.jpg
//
// version 是一次发布开始时的毫秒时间戳，同一次发布的所有对象共享同一个值。
// 它作为 CDN 缓存穿透标记保留：重新发布同一 slug 会得到新的 URL。

// SourceKey 返回源文件的对象 key。
func SourceKey(ownerID, slug, ext string, version int64) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return fmt.Sprintf("%s/decks/%s-%d.%s", ownerID, slug, version, ext)
}

// PageKey 返回本地渲染页面的对象 key，n 从 1 开始。
func PageKey(ownerID, slug string, n int, version int64) string {
	return fmt.Sprintf("%spage-%d-%d.webp", PagePrefix(ownerID, slug), n, version)
}

// RemotePageKey 返回远程转换页面的对象 key，重复转换会原地覆盖。
func RemotePageKey(ownerID, slug string, n int) string {
	return fmt.Sprintf("%spage-%d.jpg", PagePrefix(ownerID, slug), n)
}

// PagePrefix 是某个 slug 全部页面图片所在的前缀。
func PagePrefix(ownerID, slug string) string {
	return fmt.Sprintf("%s/deck-images/%s/", ownerID, slug)
}

// SourcePrefix 是某个 owner 全部源文件所在的前缀。
func SourcePrefix(ownerID string) string {
	return ownerID + "/decks/"
}

// ImagesPrefix 是某个 owner 全部页面图片所在的前缀。
func ImagesPrefix(ownerID string) string {
	return ownerID + "/deck-images/"
}
