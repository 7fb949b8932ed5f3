// Command dac runs the DAC dashboard gateway.
package main

func main() {
	Execute()
}
