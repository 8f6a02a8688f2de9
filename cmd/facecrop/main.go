// Command facecrop detects faces in local or remote images and writes each cropped face to disk.
package main

func main() {
	Execute()
}
