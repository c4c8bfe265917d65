package main

import (
	"context"
	"errors"
	"net/http"
)

func main() {
	app := mustBootstrapAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}
