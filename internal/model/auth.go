package model

// AuthScope は認証コンテキストの権限範囲。
type AuthScope string

const (
	AuthScopeDefault AuthScope = "Default"
)

// AuthContext は呼び出し元の認証状態。GuestAuthContext か UserAuthContext のいずれか。
type AuthContext interface {
	isAuthContext()
}

// GuestAuthContext は未ログインの呼び出し元。
type GuestAuthContext struct {
	Scope AuthScope
}

// UserAuthContext はログイン済みの呼び出し元。
type UserAuthContext struct {
	Scope           AuthScope
	User            ShortUser
	IsAdministrator bool
}

func (GuestAuthContext) isAuthContext() {}
func (UserAuthContext) isAuthContext()  {}

// Guest は既定のゲストコンテキストを返す。
func Guest() AuthContext {
	return GuestAuthContext{Scope: AuthScopeDefault}
}

// IsSelfOrAdmin は acx が id 本人または管理者かどうかを返す。
func IsSelfOrAdmin(acx AuthContext, id UserID) bool {
	u, ok := acx.(UserAuthContext)
	return ok && (u.IsAdministrator || u.User.ID == id)
}
