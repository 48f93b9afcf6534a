// Package models holds the GORM entities for the contest platform.
package models

import (
	"time"
)

// OwnerSetStatus reflects whether a bot's owner wants it competing at all.
type OwnerSetStatus string

const (
	OwnerSetInactive OwnerSetStatus = "inactive"
	OwnerSetActive   OwnerSetStatus = "active"
)

// SystemStatus reflects whether the platform itself considers a bot runnable.
type SystemStatus string

const (
	SystemStatusUnknown     SystemStatus = "unknown"
	SystemStatusOk          SystemStatus = "ok"
	SystemStatusDeactivated SystemStatus = "deactivated"
)

// Bot is one account's entry for a given game, wrapping a compiled Program.
type Bot struct {
	ID                 uint   `gorm:"primarykey"`
	Name               string `gorm:"index:idx_bots_game_name,unique"`
	OwnerID            uint   `gorm:"index"`
	GameID             uint   `gorm:"index:idx_bots_game_name,unique"`
	ProgramID          uint
	OwnerSetStatus     OwnerSetStatus `gorm:"default:active"`
	SystemStatus       SystemStatus   `gorm:"default:unknown"`
	SystemStatusReason string
	IsReferenceBot     bool
	CreationTime       time.Time
	StatusUpdateTime   time.Time

	Program Program `gorm:"foreignKey:ProgramID"`
}

// Eligible reports whether the bot may currently be drawn into a match.
func (b *Bot) Eligible() bool {
	return b.OwnerSetStatus == OwnerSetActive && b.SystemStatus == SystemStatusOk
}

// ProgramStatus tracks a submission through compilation.
type ProgramStatus string

const (
	ProgramNew                 ProgramStatus = "new"
	ProgramCompiling           ProgramStatus = "compiling"
	ProgramCompilationSucceded ProgramStatus = "compilation_succeded" // matches the upstream spelling on the wire
	ProgramCompilationFailed   ProgramStatus = "compilation_failed"
)

// Language is one of the five supported source languages.
type Language string

const (
	LanguageCpp    Language = "cpp"
	LanguageRust   Language = "rust"
	LanguageGo     Language = "go"
	LanguageJava   Language = "java"
	LanguagePython Language = "python"
)

// Program is one immutable blob of submitted source plus its compile state.
type Program struct {
	ID               uint `gorm:"primarykey"`
	Language         Language
	Status           ProgramStatus `gorm:"default:new"`
	StatusReason     string
	IsPublic         bool
	CreationTime     time.Time
	StatusUpdateTime time.Time
}

// GameStatus toggles whether a game is eligible for scheduling.
type GameStatus string

const (
	GameInactive GameStatus = "inactive"
	GameActive   GameStatus = "active"
)

// Game describes a competition: the server program plus player-count bounds.
type Game struct {
	ID          uint   `gorm:"primarykey"`
	Name        string `gorm:"uniqueIndex"`
	Description string
	MinPlayers  uint
	MaxPlayers  uint
	ProgramID   uint
	Status      GameStatus `gorm:"default:active"`
	// Param is substituted into the server's invocation: "{num_players}" becomes
	// the drawn player count for that match.
	Param string

	Program Program `gorm:"foreignKey:ProgramID"`
}

// Match is a single run of a Game's server against a drawn set of Bots.
type Match struct {
	ID            uint `gorm:"primarykey"`
	GameID        uint `gorm:"index"`
	CreationTime  time.Time
	StartTime     *time.Time
	EndTime       *time.Time
	Log           *uint // not filled in: the replay is stored as File (OwningMatch, match ID, "replay.log")
	SystemMessage string

	Participations []MatchParticipation `gorm:"foreignKey:MatchID"`
}

// MatchParticipation is one seat at the table in a Match.
type MatchParticipation struct {
	MatchID       uint `gorm:"primarykey"`
	BotID         uint
	IngamePlayer  uint `gorm:"primarykey"`
	Score         *float64
	SystemMessage *string
}

// WorkType distinguishes the two kinds of background jobs.
type WorkType string

const (
	WorkCompilation WorkType = "compilation"
	WorkRunMatch    WorkType = "run_match"
)

// WorkStatus tracks a WorkItem through the scheduler's queue.
type WorkStatus string

const (
	WorkScheduled WorkStatus = "scheduled"
	WorkStarted   WorkStatus = "started"
	WorkCompleted WorkStatus = "completed"
	WorkCanceled  WorkStatus = "canceled"
	WorkFailed    WorkStatus = "failed"
)

// WorkItem is one unit of background work: compile a program, or run a match.
// Higher Priority is claimed first; ties break on older CreationTime.
type WorkItem struct {
	ID           uint `gorm:"primarykey"`
	CreationTime time.Time
	StartTime    *time.Time
	EndTime      *time.Time
	WorkType     WorkType
	Status       WorkStatus `gorm:"default:scheduled;index"`
	GameID       *uint
	ProgramID    *uint
	MatchID      *uint
	Priority     int64
}

// StatsSnapshot is one row of a bot's running score/match totals, rebuilt
// after each match it plays and flagged Latest on the most recent row.
type StatsSnapshot struct {
	ID          uint `gorm:"primarykey"`
	BotID       uint `gorm:"index"`
	Latest      bool `gorm:"index"`
	UpdateTime  time.Time
	MatchID     *uint
	TotalScore  float64
	TotalMatches int64
}

// FileKind distinguishes the blob's purpose.
type FileKind int

const (
	FileKindUnknown FileKind = iota
	FileKindSourceCode
	FileKindStaticContent
	FileKindMatchReplay
)

// FileCompression marks whether Content is raw or gzip-compressed.
type FileCompression int

const (
	CompressionUncompressed FileCompression = iota
	CompressionGzip
)

// FileOwningEntity names what a File belongs to, paired with OwningID.
type FileOwningEntity int

const (
	OwningNone FileOwningEntity = iota
	OwningAccount
	OwningGame
	OwningMatch
	OwningProgram
)

// File is a content-addressed-by-name blob: source code, static assets, or
// gzip-compressed match replays. The tuple (Name, OwningEntity, OwningID) is
// unique; writes upsert on conflict.
type File struct {
	ID           uint `gorm:"primarykey"`
	OwningEntity FileOwningEntity `gorm:"uniqueIndex:idx_files_owner"`
	OwningID     *uint            `gorm:"uniqueIndex:idx_files_owner"`
	Name         string           `gorm:"uniqueIndex:idx_files_owner"`
	LastUpdate   time.Time
	Kind         FileKind
	Compression  FileCompression
	Content      []byte
}

// AllModels lists every entity AutoMigrate must know about.
func AllModels() []interface{} {
	return []interface{}{
		&Program{},
		&Bot{},
		&Game{},
		&Match{},
		&MatchParticipation{},
		&WorkItem{},
		&StatsSnapshot{},
		&File{},
	}
}
