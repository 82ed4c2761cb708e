package watchparty

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrPartyNotFound 观影房间不存在
var ErrPartyNotFound = errors.New("party not found")

// WatchParty 观影房间
type WatchParty struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	HostID    string    `gorm:"size:64;index;not null" json:"hostId"`
	Title     string    `gorm:"size:120;not null" json:"title"`
	MediaID   string    `gorm:"size:64;not null" json:"mediaId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`
}

// TableName 表名
func (WatchParty) TableName() string { return "watch_parties" }

// Playback 播放状态，保存在缓存中
type Playback struct {
	Position  float64   `json:"position"`
	Playing   bool      `json:"playing"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store 观影房间持久化
type Store struct {
	db *gorm.DB
}

// NewStore 创建 Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 自动迁移表结构
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&WatchParty{})
}

// Create 新建房间
func (s *Store) Create(ctx context.Context, p *WatchParty) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// Get 按 ID 查询
func (s *Store) Get(ctx context.Context, id string) (WatchParty, error) {
	var p WatchParty
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, ErrPartyNotFound
	}
	return p, err
}

// Touch 刷新活跃时间
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&WatchParty{}).Where("id = ?", id).Update("updated_at", at).Error
}

// Stale 返回 UpdatedAt 早于 before 的房间 ID
func (s *Store) Stale(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&WatchParty{}).
		Where("updated_at < ?", before).
		Order("updated_at").
		Pluck("id", &ids).Error
	return ids, err
}

// Delete 删除房间
func (s *Store) Delete(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&WatchParty{})
	return res.RowsAffected, res.Error
}
