package gallery

// SuperUser 是无视 .hide 规则的超级用户名。
const SuperUser = "super"

// Identity 是已由外部认证组件校验过的调用方身份。零值为匿名身份；
// 空字符串名称与匿名是两种不同身份。Identity 可比较，可直接作为缓存键。
type Identity struct {
	name    string
	present bool
}

// Anonymous 返回匿名身份。
func Anonymous() Identity {
	return Identity{}
}

// Named 返回具名身份，name 可以为空字符串。
func Named(name string) Identity {
	return Identity{name: name, present: true}
}

// IsAnonymous 报告是否为匿名身份。
func (i Identity) IsAnonymous() bool {
	return !i.present
}

// Name 返回身份名称；匿名身份返回空字符串。
func (i Identity) Name() string {
	return i.name
}

// String 用于日志，区分匿名与空名称。
func (i Identity) String() string {
	if !i.present {
		return "anonymous"
	}
	return "user:" + i.name
}
