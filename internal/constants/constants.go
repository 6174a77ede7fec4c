package constants

// 管理员角色
const (
	RoleAdmin     = "admin"     // 站点管理员
	RoleWebmaster = "webmaster" // 站长（内容维护）
)

// 会话安全等级
const (
	// SessionSecurityCurrent 当前签发方案
	SessionSecurityCurrent = "current"
	// SessionSecurityLegacy 旧方案签发的会话（迁移期间仍可校验）
	SessionSecurityLegacy = "legacy"
)

// 会话校验失败原因（仅用于内部审计日志，不回传给调用方）
const (
	SessionRejectNoSession        = "no_session"
	SessionRejectExpired          = "expired"
	SessionRejectRevoked          = "revoked"
	SessionRejectOrphaned         = "orphaned_session"
	SessionRejectStoreUnavailable = "store_unavailable"
)

// 验证码场景
const (
	CaptchaSceneAdminLogin = "admin_login"
)

// 队列名称
const (
	QueueDefault = "default"
)

// 异步任务类型
const (
	TaskSessionPurge = "session:purge"
)

// gin 上下文键
const (
	ContextKeyAdminID             = "admin_id"
	ContextKeyUsername            = "username"
	ContextKeyRole                = "role"
	ContextKeyForcePasswordChange = "force_password_change"
	ContextKeySessionIdentity     = "session_identity"
)
