package variables

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Системные переменные.
const (
	SysToday              = "%__today__%"
	SysTodayFormatted     = "%__today_formatted__%"
	SysMonth              = "%__month__%"
	SysYear               = "%__year__%"
	SysWeekNumber         = "%__weeknumber__%"
	SysTomorrow           = "%__tomorrow__%"
	SysTomorrowFormatted  = "%__tomorrow_formatted__%"
	SysYesterday          = "%__yesterday__%"
	SysYesterdayFormatted = "%__yesterday_formatted__%"
	SysTime               = "%__time__%"
	SysTimeFormatted      = "%__time_formatted__%"
	SysNow                = "%__now__%"
	SysNowFormatted       = "%__now_formatted__%"
	SysFolderDesktop      = "%__folder_desktop__%"
	SysFolderDownloads    = "%__folder_downloads__%"
	SysFolderHome         = "%__folder_home__%"
	SysFolderSystem       = "%__folder_system__%"
	SysFolderTemp         = "%__folder_temp__%"
	SysUserName           = "%__user_name__%"
	SysHostName           = "%__host_name__%"
)

// Форматы дат системных переменных.
const (
	dateFormat     = "02-01-2006"
	timeFormat     = "15:04:05"
	nowFormat      = "02-01-2006 15:04:05"
	nowFileFormat  = "02-01-2006_150405"
	timeFileFormat = "150405"
)

// SystemEnv — источник сведений об окружении для системных переменных.
type SystemEnv struct {
	Home     func() (string, error)
	UserName func() string
	HostName func() (string, error)
	TempDir  func() string
}

// DefaultSystemEnv возвращает окружение текущего процесса.
func DefaultSystemEnv() SystemEnv {
	return SystemEnv{
		Home:     os.UserHomeDir,
		UserName: currentUser,
		HostName: os.Hostname,
		TempDir:  os.TempDir,
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, env := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// IsSystem сообщает, является ли имя системной переменной.
func IsSystem(name string) bool {
	k := Key(name)
	return strings.HasPrefix(k, "%__") && strings.HasSuffix(k, "__%")
}

// PopulateSystem заполняет системные переменные, упомянутые в текстах
// и ещё отсутствующие в хранилище.
func (s *Store) PopulateSystem(texts ...string) {
	for _, text := range texts {
		if !strings.Contains(text, "%__") {
			continue
		}
		for _, tok := range Tokens(text) {
			k := ParseRef(tok).Key()
			if !IsSystem(k) || s.Has(k) {
				continue
			}
			s.mu.RLock()
			clock, env := s.clock, s.env
			s.mu.RUnlock()

			if v, ok := systemValue(k, clock(), env); ok {
				s.Set(k, v)
			}
		}
	}
}

// systemValue вычисляет значение системной переменной.
func systemValue(name string, now time.Time, env SystemEnv) (any, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch name {
	case SysToday:
		return today, true
	case SysTodayFormatted:
		return today.Format(dateFormat), true
	case SysMonth:
		return fmt.Sprintf("%02d", int(now.Month())), true
	case SysYear:
		return now.Year(), true
	case SysWeekNumber:
		_, week := now.ISOWeek()
		return fmt.Sprintf("%02d", week), true
	case SysTomorrow:
		return today.AddDate(0, 0, 1), true
	case SysTomorrowFormatted:
		return today.AddDate(0, 0, 1).Format(dateFormat), true
	case SysYesterday:
		return today.AddDate(0, 0, -1), true
	case SysYesterdayFormatted:
		return today.AddDate(0, 0, -1).Format(dateFormat), true
	case SysTime:
		return now.Format(timeFormat), true
	case SysTimeFormatted:
		return now.Format(timeFileFormat), true
	case SysNow:
		return now.Format(nowFormat), true
	case SysNowFormatted:
		return now.Format(nowFileFormat), true
	case SysFolderDesktop:
		return homeSubdir(env, "Desktop")
	case SysFolderDownloads:
		return homeSubdir(env, "Downloads")
	case SysFolderHome:
		return homeSubdir(env, "")
	case SysFolderSystem:
		return systemFolder(), true
	case SysFolderTemp:
		if env.TempDir == nil {
			return nil, false
		}
		return env.TempDir(), true
	case SysUserName:
		if env.UserName == nil {
			return nil, false
		}
		return env.UserName(), true
	case SysHostName:
		if env.HostName == nil {
			return nil, false
		}
		h, err := env.HostName()
		if err != nil {
			return nil, false
		}
		return h, true
	}
	return nil, false
}

func homeSubdir(env SystemEnv, sub string) (any, bool) {
	if env.Home == nil {
		return nil, false
	}
	home, err := env.Home()
	if err != nil {
		return nil, false
	}
	if sub == "" {
		return home, true
	}
	return filepath.Join(home, sub), true
}

func systemFolder() string {
	if runtime.GOOS == "windows" {
		if root := os.Getenv("SystemRoot"); root != "" {
			return filepath.Join(root, "System32")
		}
		return `C:\Windows\System32`
	}
	return "/usr/bin"
}
