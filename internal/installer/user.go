package installer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoUserID is returned when the current Android user cannot be determined
var ErrNoUserID = errors.New("installer: could not resolve current user id")

// currentUserSDK is the first SDK level that ships `am get-current-user`
const currentUserSDK = 25

// UserResolver resolves the Android user that packages are installed for
type UserResolver interface {
	CurrentUser(ctx context.Context) (string, error)
}

// NewUserResolver picks the lookup that works on the given SDK level
func NewUserResolver(shell Shell, sdkLevel int) UserResolver {
	if sdkLevel >= currentUserSDK {
		return &activityManagerResolver{shell: shell}
	}
	return &userLruResolver{shell: shell}
}

type activityManagerResolver struct {
	shell Shell
}

func (r *activityManagerResolver) CurrentUser(ctx context.Context) (string, error) {
	res, err := r.shell.RunAsRoot(ctx, "am get-current-user")
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", ErrNoUserID
	}
	return parseUserID(firstLine(res.Out))
}

type userLruResolver struct {
	shell Shell
}

func (r *userLruResolver) CurrentUser(ctx context.Context) (string, error) {
	res, err := r.shell.RunAsRoot(ctx, `dumpsys activity | grep -E "mUserLru"`)
	if err != nil {
		return "", err
	}
	return parseUserLru(firstLine(res.Out))
}

// parseUserLru extracts the most recently used user from a line like
// "mUserLru: [0, 10]"
func parseUserLru(line string) (string, error) {
	line = strings.TrimSpace(line)
	list, ok := strings.CutPrefix(line, "mUserLru: [")
	if !ok {
		return "", ErrNoUserID
	}
	list, ok = strings.CutSuffix(list, "]")
	if !ok {
		return "", ErrNoUserID
	}

	users := strings.Split(list, ",")
	return parseUserID(users[len(users)-1])
}

// parseUserID accepts only non-negative decimal ids; the result is placed
// into root commands as is
func parseUserID(s string) (string, error) {
	s = strings.TrimSpace(s)
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return "", ErrNoUserID
	}
	return strconv.Itoa(id), nil
}

// ProbeSDKLevel reads the platform SDK level from system properties
func ProbeSDKLevel(ctx context.Context, shell Shell) (int, error) {
	res, err := shell.RunAsRoot(ctx, "getprop ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	level, err := strconv.Atoi(firstLine(res.Out))
	if err != nil {
		return 0, fmt.Errorf("unexpected sdk level %q: %w", firstLine(res.Out), err)
	}
	return level, nil
}
