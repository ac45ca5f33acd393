package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	AuthKey          = "authenticated"
	KeyUserID        = "user_id"
	KeyUsername      = "username"
	KeyIsAdmin       = "isAdmin"
	KeyPlan          = "user_plan"
	KeyFromProtected = "from_protected"

	// set between password check and OTP check at login
	KeyOTPPendingUserID = "otp_pending_user_id"
	KeyOTPPendingAt     = "otp_pending_at"
)

// LocalsKey is where the middleware stores the resolved UserContext.
const LocalsKey = "USER_CONTEXT"
