package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to the unified Error type with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return &Error{Kind: KindRedis, Err: err, Status: http.StatusNotFound, Message: RedisNotFoundMessage}
	}

	return &Error{Kind: KindRedis, Err: err, Status: http.StatusBadGateway, Message: RedisErrorMessage}
}
