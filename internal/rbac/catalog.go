package rbac

// Permission names referenced across the platform.
const (
	PermLLMUse            = "llm:use"
	PermAgentsExecute     = "agents:execute"
	PermTasksManage       = "tasks:manage"
	PermConversationsRead = "conversations:read"
	PermMediaUpload       = "media:upload"
	PermDeliverablesRead  = "read:deliverables"
	PermRosterRead        = "org:roster:read"
	PermRolesManage       = "roles:manage"
)

// Builtin role names. These are protected from deletion by convention.
const (
	RoleSuperAdmin = "super-admin"
	RoleViewer     = "viewer"
)

var BuiltinPermissions = []Permission{
	{Name: PermLLMUse, Description: "Invoke configured language models"},
	{Name: PermAgentsExecute, Description: "Execute agent runs"},
	{Name: PermTasksManage, Description: "Create and manage tasks"},
	{Name: PermConversationsRead, Description: "Read conversation history"},
	{Name: PermMediaUpload, Description: "Upload media assets"},
	{Name: PermDeliverablesRead, Description: "Read produced deliverables"},
	{Name: PermRosterRead, Description: "List organization members and roles"},
	{Name: PermRolesManage, Description: "Manage roles and their grants"},
}

// RoleSeed declares a builtin role and its initial grant set.
type RoleSeed struct {
	Name        string
	DisplayName string
	Grants      []string
}

var BuiltinRoles = []RoleSeed{
	{
		Name:        RoleSuperAdmin,
		DisplayName: "Super Admin",
		Grants: []string{
			PermLLMUse,
			PermAgentsExecute,
			PermTasksManage,
			PermConversationsRead,
			PermMediaUpload,
			PermDeliverablesRead,
			PermRosterRead,
			PermRolesManage,
		},
	},
	{
		Name:        RoleViewer,
		DisplayName: "Viewer",
		Grants: []string{
			PermConversationsRead,
			PermDeliverablesRead,
		},
	},
}
