// Package outputlog defines the transcript format testtool uses to record a
// run: several byte streams multiplexed into one file.
//
// # Format
//
// Each chunk is written as
//
//	stream timestamp length: content\n
//
// The trailing \n is a separator and is always written, also when content
// itself ends with a newline.
//
// # Fields
//
//   - stream: [a-zA-Z0-9_./-]{1,64}. testtool writes "run", "stdout",
//     "stderr", "control" and "exit".
//   - timestamp: UTC, RFC 3339 with nanoseconds, trailing zeros removed:
//     2025-01-07T12:34:56.789Z
//   - length: byte length of content
//   - content: exactly length bytes, any byte value including \0 and \n
//
// # Example
//
//	run 2025-01-07T12:00:00Z 36: 0b6c1e5e-31b8-4c59-9d38-8a8f4f2a9c43
//	stdout 2025-01-07T12:00:00.001Z 6: hello
//
//	stderr 2025-01-07T12:00:00.002Z 5: oops
//
//	exit 2025-01-07T12:00:00.003Z 6: exit 1
//
// Chunks of stdout and stderr hold the bytes exactly as they were read from
// the child, so replaying them reproduces the original line reassembly.
package outputlog
