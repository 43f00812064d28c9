package accounts

// Account is a user account able to submit business metrics entries.
// FormOpen gates a single submission: true permits one new entry,
// which then clears the flag.
type Account struct {
	Username string `json:"username"`
	// Password holds the bcrypt hash of the user password, never the
	// cleartext, and is never serialized in responses or exports
	Password string `json:"-"`
	FormOpen bool   `json:"formOpen"`
}

// default accounts, exempt from deletion
var protectedUsernames = map[string]bool{
	"admin": true,
	"test":  true,
}

func IsProtected(username string) bool {
	return protectedUsernames[username]
}
