// Package migrations はデータベースごとのスキーマ定義SQLを埋め込みで提供する。
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed mysql/*.sql postgres/*.sql sqlite/*.sql
var files embed.FS

// ForDriver は指定ドライバ用のマイグレーションファイルをルートに持つFSを返す。
func ForDriver(driver string) (fs.FS, error) {
	switch driver {
	case "mysql", "postgres", "sqlite":
		return fs.Sub(files, driver)
	}
	return nil, fmt.Errorf("unsupported database driver: %q", driver)
}
