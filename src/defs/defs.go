package defs

/// Err_t is the kernel error type. Kernel internals return negative
/// errno constants; 0 means success. The syscall boundary converts
/// these to the user ABI (-1 or false).
type Err_t int

/// Error numbers shared by all kernel subsystems.
const (
	EPERM        Err_t = 1  /// operation not permitted
	ENOENT       Err_t = 2  /// no such file or directory
	ESRCH        Err_t = 3  /// no such process
	EBADF        Err_t = 9  /// bad file descriptor
	ECHILD       Err_t = 10 /// no child processes
	EFAULT       Err_t = 14 /// bad user address
	EEXIST       Err_t = 17 /// file exists
	ENOTDIR      Err_t = 20 /// not a directory
	EISDIR       Err_t = 21 /// is a directory
	EINVAL       Err_t = 22 /// invalid argument
	EMFILE       Err_t = 24 /// too many open files
	ENOSPC       Err_t = 28 /// no space on device
	ENAMETOOLONG Err_t = 36 /// path component too long
	ENOTEMPTY    Err_t = 39 /// directory not empty
	ELOOP        Err_t = 40 /// too many symlink dereferences
	ENOMEM       Err_t = 12 /// out of memory
	ENOSYS       Err_t = 38 /// bad system call number
)

/// Tid_t identifies a kernel thread.
type Tid_t int

/// Pid_t identifies a user process. Processes are single threaded, so
/// a process's pid is its main thread's tid.
type Pid_t int

/// TID_ERR is returned when thread or process creation fails.
const TID_ERR Tid_t = -1

/// System call numbers. The number rides in the first integer
/// register of the trapframe.
const (
	SYS_HALT     = 0
	SYS_EXIT     = 1
	SYS_FORK     = 2
	SYS_EXEC     = 3
	SYS_WAIT     = 4
	SYS_CREATE   = 5
	SYS_REMOVE   = 6
	SYS_OPEN     = 7
	SYS_FILESIZE = 8
	SYS_READ     = 9
	SYS_WRITE    = 10
	SYS_SEEK     = 11
	SYS_TELL     = 12
	SYS_CLOSE    = 13
	SYS_MMAP     = 14
	SYS_MUNMAP   = 15
	SYS_CHDIR    = 16
	SYS_MKDIR    = 17
	SYS_READDIR  = 18
	SYS_ISDIR    = 19
	SYS_INUMBER  = 20
	SYS_SYMLINK  = 21
	SYS_DUP2     = 22
)

/// Lseek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

/// Open flags understood by the filesystem layer.
const (
	O_RDONLY = 0x0
	O_WRONLY = 0x1
	O_RDWR   = 0x2
	O_CREAT  = 0x40
	O_TRUNC  = 0x200
)
