package relay

// CredentialStore 静态用户名表，只读
type CredentialStore interface {
	// Lookup 返回用户名对应的密钥
	Lookup(username string) (secret string, ok bool)
}

// StaticCredentials 基于 map 的凭据表
type StaticCredentials map[string]string

// NewStaticCredentials 复制 m 创建凭据表
func NewStaticCredentials(m map[string]string) StaticCredentials {
	out := make(StaticCredentials, len(m))
	for name, secret := range m {
		out[name] = secret
	}
	return out
}

// Lookup 实现 CredentialStore
func (c StaticCredentials) Lookup(username string) (string, bool) {
	secret, ok := c[username]
	return secret, ok
}
