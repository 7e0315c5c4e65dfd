package domain

// User is the directory entry the notification layer needs to reach a
// participant. Accounts themselves are managed outside this service.
type User struct {
	ID        int32  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedOn string `json:"created_on"`
}
