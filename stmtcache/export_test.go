package stmtcache

// SetProcessIDFunc replaces the process id source. It lets tests simulate a fork.
func SetProcessIDFunc(c *Cache, f func() int) {
	c.getpid = f
}
