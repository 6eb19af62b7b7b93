//go:build !unix

package conn

func interrupted(error) bool {
	return false
}
