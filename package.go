// Comfybatch drives a ComfyUI backend from the command line or from Go code.
// It loads API-format workflow graphs, locates the semantically meaningful
// nodes (prompt encoders, samplers, latent size nodes, checkpoint and LoRA
// loaders) without a fixed schema, injects user parameters into a cloned
// graph, queues the result on the backend's job queue, polls for completion,
// and downloads the produced images.  A companion reader extracts the
// embedded workflow and job documents back out of generated PNG files.
package comfybatch
