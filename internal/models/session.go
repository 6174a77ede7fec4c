package models

import "time"

// Session 管理员会话表
// token 为不透明随机值，所有会话状态保留在服务端。
type Session struct {
	ID                  uint      `gorm:"primarykey" json:"id"`                            // 主键
	Token               string    `gorm:"uniqueIndex;not null" json:"-"`                   // 会话令牌（不可预测的随机值）
	AdminID             uint      `gorm:"not null;index" json:"admin_id"`                  // 所属管理员
	CSRFToken           string    `gorm:"not null" json:"-"`                               // 签发时绑定的 CSRF 值
	SecurityLevel       string    `gorm:"type:varchar(16);not null" json:"security_level"` // 签发方案标记（current/legacy）
	TokenVersionAtIssue uint64    `gorm:"not null" json:"-"`                               // 签发时的账号 Token 版本快照
	IPAddress           string    `gorm:"type:varchar(64)" json:"ip_address"`              // 签发时的来源地址
	UserAgent           string    `gorm:"type:text" json:"user_agent"`                     // 签发时的 UA
	ExpiresAt           time.Time `gorm:"not null;index" json:"expires_at"`                // 过期时间
	LastActivity        time.Time `gorm:"not null" json:"last_activity"`                   // 最后活动时间
	CreatedAt           time.Time `json:"created_at"`                                      // 签发时间
}

// TableName 指定表名
func (Session) TableName() string {
	return "sessions"
}

// Live 会话是否仍然有效
// 两个条件缺一不可：未过期，且版本快照与账号当前版本一致。
func (s *Session) Live(now time.Time, currentTokenVersion uint64) bool {
	if s == nil {
		return false
	}
	return s.ExpiresAt.After(now) && s.TokenVersionAtIssue == currentTokenVersion
}
