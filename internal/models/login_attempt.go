package models

import "time"

// LoginAttempt 登录失败记录
// 说明：仅以窗口内的聚合计数参与限流决策，窗口外的单条记录没有意义。
type LoginAttempt struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                        // 主键
	Username  string    `gorm:"index:idx_login_attempts_username_time;not null" json:"username"` // 尝试的账号
	ClientIP  string    `gorm:"type:varchar(64);index:idx_login_attempts_ip_time" json:"client_ip"` // 来源地址
	UserAgent string    `gorm:"type:text" json:"user_agent"`                                 // 客户端 UA
	RequestID string    `gorm:"type:varchar(64)" json:"request_id"`                          // 请求追踪 ID
	CreatedAt time.Time `gorm:"index:idx_login_attempts_username_time;index:idx_login_attempts_ip_time" json:"created_at"` // 记录时间
}

// TableName 指定表名
func (LoginAttempt) TableName() string {
	return "login_attempts"
}
