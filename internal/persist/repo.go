package persist

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GameStatus string

const (
	GameWaiting  GameStatus = "WAITING"
	GamePlaying  GameStatus = "PLAYING"
	GameFinished GameStatus = "FINISHED"
)

type Game struct {
	ID         uint       `gorm:"primaryKey"`
	Type       string     `gorm:"index"`
	Mode       string
	MaxPlayers int
	MinPlayers int
	MaxScore   int
	Status     GameStatus `gorm:"index"`
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Players    []GamePlayer
}

type GamePlayer struct {
	ID       uint   `gorm:"primaryKey"`
	GameID   uint   `gorm:"index"`
	UserID   string `gorm:"index"`
	Score    int
	JoinedAt time.Time
}

// GameRepo is the persistence collaborator. The game core never issues raw
// queries itself; all writes are best-effort relative to the simulation.
type GameRepo interface {
	CreateGame(ctx context.Context, gameType, mode string, maxPlayers, minPlayers, maxScore int) (*Game, error)
	AddPlayer(ctx context.Context, gameID uint, userID string) (*GamePlayer, error)
	StartGame(ctx context.Context, gameID uint) error
	EndGame(ctx context.Context, gameID uint) error
	ActiveGames(ctx context.Context) ([]Game, error)
}

// GormRepo is the Postgres-backed implementation.
type GormRepo struct {
	db *gorm.DB
}

func Open(dsn string) (*GormRepo, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Game{}, &GamePlayer{}); err != nil {
		return nil, err
	}
	return &GormRepo{db: db}, nil
}

func NewGormRepo(db *gorm.DB) *GormRepo { return &GormRepo{db: db} }

func (r *GormRepo) CreateGame(ctx context.Context, gameType, mode string, maxPlayers, minPlayers, maxScore int) (*Game, error) {
	game := &Game{
		Type:       gameType,
		Mode:       mode,
		MaxPlayers: maxPlayers,
		MinPlayers: minPlayers,
		MaxScore:   maxScore,
		Status:     GameWaiting,
	}
	if err := r.db.WithContext(ctx).Create(game).Error; err != nil {
		return nil, err
	}
	return game, nil
}

func (r *GormRepo) AddPlayer(ctx context.Context, gameID uint, userID string) (*GamePlayer, error) {
	player := &GamePlayer{GameID: gameID, UserID: userID, JoinedAt: time.Now()}
	if err := r.db.WithContext(ctx).Create(player).Error; err != nil {
		return nil, err
	}
	return player, nil
}

func (r *GormRepo) StartGame(ctx context.Context, gameID uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&Game{}).Where("id = ?", gameID).
		Updates(map[string]any{"status": GamePlaying, "started_at": &now}).Error
}

func (r *GormRepo) EndGame(ctx context.Context, gameID uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&Game{}).Where("id = ?", gameID).
		Updates(map[string]any{"status": GameFinished, "finished_at": &now}).Error
}

func (r *GormRepo) ActiveGames(ctx context.Context) ([]Game, error) {
	var games []Game
	err := r.db.WithContext(ctx).Where("status = ?", GamePlaying).Find(&games).Error
	return games, err
}
