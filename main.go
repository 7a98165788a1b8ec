package main

import "github.com/ValentinKolb/eKV/cmd"

func main() {
	cmd.Execute()
}
