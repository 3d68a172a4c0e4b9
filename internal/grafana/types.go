package grafana

// Permission is a Grafana folder permission level.
type Permission int

const (
	PermissionView  Permission = 1
	PermissionEdit  Permission = 2
	PermissionAdmin Permission = 4
)

func (p Permission) String() string {
	switch p {
	case PermissionView:
		return "view"
	case PermissionEdit:
		return "edit"
	case PermissionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type CreateUserParams struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Login    string `json:"login"`
	Password string `json:"password"`
	OrgID    int64  `json:"OrgId,omitempty"`
}

type createUserResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type Folder struct {
	ID    int64  `json:"id"`
	UID   string `json:"uid"`
	Title string `json:"title"`
}

// Ref is the path segment used to address the folder: the uid when Grafana returned one, else the numeric id.
func (f Folder) Ref() string {
	if f.UID != "" {
		return f.UID
	}
	return formatID(f.ID)
}

type createFolderRequest struct {
	Title string `json:"title"`
}

type FolderPermission struct {
	UserID     int64      `json:"userId"`
	Permission Permission `json:"permission"`
}

type folderPermissionsRequest struct {
	Items []FolderPermission `json:"items"`
}

type Org struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
