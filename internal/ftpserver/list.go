package ftpserver

import (
	"fmt"
	"time"

	"github.com/rclone/multiserve/internal/vfs"
)

// modeTable maps one octal permission digit to its rwx rendering,
// grounded on original_source/ftp/osemulators.py's mode_table.
var modeTable = [8]string{"---", "--x", "-w-", "-wx", "r--", "r-x", "rw-", "rwx"}

// lsLongify formats one entry the way `ls -l` would, matching
// osemulators.ls_longify.
func lsLongify(now time.Time, info vfs.Info) string {
	dirChar := "-"
	if info.Kind == vfs.KindDir {
		dirChar = "d"
	}
	mode := info.Mode & 0o777
	rwx := modeTable[(mode>>6)&7] + modeTable[(mode>>3)&7] + modeTable[mode&7]
	return fmt.Sprintf("%s%s %3d %-8s %-8s %8d %s %s",
		dirChar, rwx, info.NLinks, trunc8(info.Owner), trunc8(info.Group),
		info.Size, lsDate(now, info.ModTime), info.Name)
}

func trunc8(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// lsDate mirrors osemulators.ls_date's two display formats.
func lsDate(now, t time.Time) string {
	if now.Sub(t) > 180*24*time.Hour || t.Sub(now) > 180*24*time.Hour {
		return t.Format("Jan _2 2006")
	}
	return t.Format("Jan _2 15:04")
}
