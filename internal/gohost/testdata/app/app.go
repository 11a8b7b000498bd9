package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"example.com/app/store"
)

// Color is a palette entry.
type Color int

const (
	// Red is warm.
	Red Color = iota
	Green
)

// User is a registered account.
//
//go:generate echo user
type User struct {
	// Name is the display name.
	Name  string `json:"name" db:"user_name"`
	Age   int
	Tags  []string
	Boss  *User
	Meta  map[string]float64
	Color Color
}

func (u *User) Greet(greeting string) string {
	return greeting + ", " + u.Name
}

func (u User) String() string {
	return fmt.Sprintf("user %s", u.Name)
}

// Lookup finds a user.
//
//go:noinline
func Lookup(name string) (*User, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}
	return &User{Name: name}, nil
}

func Map[T any](xs []T, f func(T) T) []T {
	out := make([]T, 0, len(xs))
	for _, x := range xs {
		out = append(out, f(x))
	}
	return out
}

func handler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "hello %s", r.URL.Path)
}

func Routes(mux *http.ServeMux) {
	mux.HandleFunc("/users", handler)
	mux.Handle("/static", http.NotFoundHandler())

	u, _ := Lookup("ann")
	_ = strings.ToUpper(u.Greet("hello"))
	_ = Map([]int{1, 2}, func(x int) int { return x * 2 })
	_ = store.New().With("k").With("v").Len()
}
