package main

//go:generate swag init -g cmd/stackhandler/main.go -o docs

// @title           Futures Stack Handler API
// @version         0.1.0
// @description     Order stacks, roll states, positions and operator controls for futures execution.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
