package globals

// Context keys
type ContextKey string

const UserIDKey ContextKey = "userId"
const SessionIDKey ContextKey = "sessionId"

// DateLayout is the plain-date form used by drafts and query filters.
const DateLayout = "2006-01-02"

// DisplayDateLayout is the day/month/year form shown to users.
const DisplayDateLayout = "02/01/2006"
